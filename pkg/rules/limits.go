package rules

// Default size thresholds, one per validated scope. Values follow conservative
// production limits: headers large enough for cookies and JWTs but well under
// the 5 KB abuse range, query values sized for search strings, body fields
// sized for free-text descriptions.
const (
	DefaultMaxHeaderValueBytes = 4096
	DefaultMaxHeaderNameBytes  = 128
	DefaultMaxQueryValueBytes  = 1024
	DefaultMaxBodyFieldBytes   = 8192
	DefaultMaxBodyBytes        = 10 << 20
	DefaultMaxJSONContainers   = 100
)

// Limits carries the configured size thresholds. A zero value in any field
// selects the corresponding default; Normalized never returns zeroes.
type Limits struct {
	MaxHeaderValueBytes int   `json:"maxHeaderValueBytes" yaml:"maxHeaderValueBytes"`
	MaxHeaderNameBytes  int   `json:"maxHeaderNameBytes" yaml:"maxHeaderNameBytes"`
	MaxQueryValueBytes  int   `json:"maxQueryValueBytes" yaml:"maxQueryValueBytes"`
	MaxBodyFieldBytes   int   `json:"maxBodyFieldBytes" yaml:"maxBodyFieldBytes"`
	MaxBodyBytes        int64 `json:"maxBodyBytes" yaml:"maxBodyBytes"`
	MaxJSONContainers   int   `json:"maxJsonContainers" yaml:"maxJsonContainers"`
}

// DefaultLimits returns the builtin thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderValueBytes: DefaultMaxHeaderValueBytes,
		MaxHeaderNameBytes:  DefaultMaxHeaderNameBytes,
		MaxQueryValueBytes:  DefaultMaxQueryValueBytes,
		MaxBodyFieldBytes:   DefaultMaxBodyFieldBytes,
		MaxBodyBytes:        DefaultMaxBodyBytes,
		MaxJSONContainers:   DefaultMaxJSONContainers,
	}
}

// Normalized fills unset fields with defaults and returns the result.
func (l Limits) Normalized() Limits {
	if l.MaxHeaderValueBytes <= 0 {
		l.MaxHeaderValueBytes = DefaultMaxHeaderValueBytes
	}
	if l.MaxHeaderNameBytes <= 0 {
		l.MaxHeaderNameBytes = DefaultMaxHeaderNameBytes
	}
	if l.MaxQueryValueBytes <= 0 {
		l.MaxQueryValueBytes = DefaultMaxQueryValueBytes
	}
	if l.MaxBodyFieldBytes <= 0 {
		l.MaxBodyFieldBytes = DefaultMaxBodyFieldBytes
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if l.MaxJSONContainers <= 0 {
		l.MaxJSONContainers = DefaultMaxJSONContainers
	}
	return l
}
