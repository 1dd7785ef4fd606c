package vectorstore

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeVector serializes an embedding into the bracketed comma-separated
// literal consumed by the similarity index, e.g. "[0.013,-0.221,...]".
func EncodeVector(embedding []float32) string {
	var sb strings.Builder
	sb.Grow(len(embedding) * 8)

	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sb.WriteByte(']')

	return sb.String()
}

// DecodeVector parses the bracketed literal form back into a float32 slice.
func DecodeVector(s string) ([]float32, error) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, fmt.Errorf("invalid vector literal: %q", s)
	}

	inner := trimmed[1 : len(trimmed)-1]
	if strings.TrimSpace(inner) == "" {
		return []float32{}, nil
	}

	parts := strings.Split(inner, ",")
	vec := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component at position %d: %w", i, err)
		}
		vec[i] = float32(f)
	}

	return vec, nil
}
