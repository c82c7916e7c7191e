package nats

import "strings"

// SubjectForTopic maps a ROS-style topic or service name ("/cmd_vel",
// "/robot1/odom") onto a NATS subject ("cmd_vel", "robot1.odom").
// Leading/trailing slashes are trimmed, internal slashes become
// subject-hierarchy dots, and any character NATS subjects forbid is
// replaced with an underscore, grounded on the teacher's
// sanitizeNATSKey helpers in config/manager.go and
// processor/graph/indexmanager/indexes.go.
func SubjectForTopic(name string) string {
	trimmed := strings.Trim(name, "/")
	if trimmed == "" {
		trimmed = "_"
	}
	segments := strings.Split(trimmed, "/")
	for i, seg := range segments {
		segments[i] = sanitizeSegment(seg)
	}
	return strings.Join(segments, ".")
}

func sanitizeSegment(seg string) string {
	if seg == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(seg))
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// keyExprToKVKey translates a graph liveliness key expression
// ("@rmw/v1/...") into a NATS KV key. KV keys live in NATS's
// '.'-delimited hierarchy, so the translation swaps separators and
// escapes any literal '.' inside a field as "%2E"; kvKeyToKeyExpr
// reverses both. Safe because graph.Encode already percent-escapes any
// literal '/' and '%' inside a field, so the only '/' characters
// remaining are field separators and "%2E" never occurs on its own.
func keyExprToKVKey(keyExpr string) string {
	return strings.NewReplacer(".", "%2E", "/", ".").Replace(keyExpr)
}

func kvKeyToKeyExpr(kvKey string) string {
	return strings.NewReplacer(".", "/", "%2E", ".").Replace(kvKey)
}
