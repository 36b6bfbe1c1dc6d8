package telemetry

import "go.opentelemetry.io/otel/attribute"

// toAttrs parses "key=value" tag strings into otel attributes, ignoring
// malformed entries.
func toAttrs(tags []string) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(tags))
	for _, t := range tags {
		key, value := splitTag(t)
		if key == "" {
			continue
		}
		out = append(out, attribute.String(key, value))
	}
	return out
}

func splitTag(tag string) (string, string) {
	for i := 0; i < len(tag); i++ {
		if tag[i] == '=' {
			return tag[:i], tag[i+1:]
		}
	}
	return tag, ""
}
