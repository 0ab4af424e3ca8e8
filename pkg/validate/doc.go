// Package validate implements the request checkers that sit behind the
// security interceptor: header, query, and body validation against a shared
// signature library and configured size limits. All checkers are pure
// functions of the request snapshot and are safe for concurrent use.
package validate
