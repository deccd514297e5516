package telemetry

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/arloliu/scanrelay/types"
)

type timeoutDocument struct {
	TimeoutMillis *int64 `toml:"timeoutMillis"`
}

// ParseTimeoutFile decodes the operator timeout file.
//
// The file holds either a bare decimal number of milliseconds or a TOML
// document with a timeoutMillis key:
//
//	timeoutMillis = 3000
//
// Only positive values are accepted.
func ParseTimeoutFile(data []byte) (time.Duration, error) {
	text := bytes.TrimSpace(data)
	if len(text) == 0 {
		return 0, fmt.Errorf("%w: timeout file is empty", types.ErrInvalidConfig)
	}

	ms, err := strconv.ParseInt(string(text), 10, 64)
	if err != nil {
		var doc timeoutDocument
		if terr := toml.Unmarshal(text, &doc); terr != nil {
			return 0, fmt.Errorf("%w: timeout file is neither an integer nor TOML: %w", types.ErrInvalidConfig, terr)
		}
		if doc.TimeoutMillis == nil {
			return 0, fmt.Errorf("%w: timeout file has no timeoutMillis key", types.ErrInvalidConfig)
		}
		ms = *doc.TimeoutMillis
	}

	if ms <= 0 {
		return 0, fmt.Errorf("%w: timeout must be positive, got %d", types.ErrInvalidConfig, ms)
	}
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return 0, fmt.Errorf("%w: timeout %dms overflows", types.ErrInvalidConfig, ms)
	}

	return time.Duration(ms) * time.Millisecond, nil
}
