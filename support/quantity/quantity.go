// Package quantity canonicalizes Kubernetes CPU and memory quantity strings
// so that differently spelled but equal quantities compare as equal.
package quantity

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MalformedQuantityError indicates a quantity string whose numeric prefix
// could not be interpreted for its suffix.
type MalformedQuantityError struct {
	Value string
}

func (e *MalformedQuantityError) Error() string {
	return fmt.Sprintf("malformed quantity %q", e.Value)
}

// memorySuffixes is consulted in order. Longer suffixes come first so that
// "Ki" is never misread as a bare "K" with a trailing "i".
var memorySuffixes = []struct {
	suffix string
	factor int64
}{
	{"Ki", 1024},
	{"Mi", 1024 * 1024},
	{"Gi", 1024 * 1024 * 1024},
	{"K", 1000},
	{"k", 1000},
	{"M", 1000 * 1000},
	{"G", 1000 * 1000 * 1000},
}

// CPU converts a CPU quantity to millicores. Values already in millicores
// pass through unchanged; core counts, including fractional ones, are
// multiplied out.
func CPU(s string) (string, error) {
	if strings.HasSuffix(s, "m") {
		return s, nil
	}
	cores, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", &MalformedQuantityError{Value: s}
	}
	return strconv.FormatInt(int64(math.Round(cores*1000)), 10) + "m", nil
}

// Memory converts a memory quantity to a decimal byte count. Binary (Ki, Mi,
// Gi) and decimal (K, M, G) suffixes are multiplied out; the "m" suffix
// divides by 1000, preserving the millibyte form OpenShift emits for
// fractional quantities. Unsuffixed values pass through numerically.
func Memory(s string) (string, error) {
	for _, entry := range memorySuffixes {
		if !strings.HasSuffix(s, entry.suffix) {
			continue
		}
		prefix := strings.TrimSuffix(s, entry.suffix)
		n, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			return "", &MalformedQuantityError{Value: s}
		}
		return strconv.FormatInt(n*entry.factor, 10), nil
	}
	if strings.HasSuffix(s, "m") {
		prefix := strings.TrimSuffix(s, "m")
		n, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			return "", &MalformedQuantityError{Value: s}
		}
		return strconv.FormatFloat(float64(n)/1000, 'f', -1, 64), nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	// Unrecognized suffixes are not this package's business to reject.
	return s, nil
}
