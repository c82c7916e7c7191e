package graph

import (
	"strconv"
	"strings"
	"time"
)

// Prefix is the fixed marker segment every liveliness key expression
// starts with.
const Prefix = "@rmw"

// Version is the current liveliness key-expression grammar version.
// Decode silently discards tokens whose version segment does not
// match, per spec §3 ("parsing is total except for version mismatch,
// which discards silently").
const Version = "v1"

// emptyPlaceholder marks a field that was empty at encode time.
// Zenoh-style key expressions disallow a truly empty path chunk, so an
// empty namespace/enclave/topic field serializes as this single
// reserved token rather than as an empty segment between two
// slashes, matching rmw_zenoh_cpp's liveliness::Entity::make.
const emptyPlaceholder = "%"

// Encode serializes e into a hierarchical liveliness key expression.
// Encoding never fails: every field has a valid representation.
func Encode(e EntityDescriptor) string {
	segments := []string{
		Prefix,
		Version,
		mangle(e.ZID),
		mangle(e.NID),
		mangle(e.ID),
		e.Kind.token(),
		strconv.FormatUint(uint64(e.NodeInfo.DomainID), 10),
		mangle(e.NodeInfo.Namespace),
		mangle(e.NodeInfo.NodeName),
		mangle(e.NodeInfo.Enclave),
	}

	if e.TopicInfo != nil {
		segments = append(segments,
			mangle(e.TopicInfo.Name),
			mangle(e.TopicInfo.TypeName),
			mangle(e.TopicInfo.TypeHash),
			encodeQoS(e.TopicInfo.QoS),
		)
	}

	return strings.Join(segments, "/")
}

// Decode parses a liveliness key expression into an EntityDescriptor.
// It returns ok=false for any malformed or version-mismatched key;
// callers must treat that as "ignore," never as an error to surface.
func Decode(keyExpr string) (EntityDescriptor, bool) {
	parts := strings.Split(keyExpr, "/")
	if len(parts) != 10 && len(parts) != 14 {
		return EntityDescriptor{}, false
	}
	if parts[0] != Prefix {
		return EntityDescriptor{}, false
	}
	if parts[1] != Version {
		return EntityDescriptor{}, false
	}

	kind, ok := kindFromToken(parts[5])
	if !ok {
		return EntityDescriptor{}, false
	}

	domainID, err := strconv.ParseUint(parts[6], 10, 32)
	if err != nil {
		return EntityDescriptor{}, false
	}

	zid, ok1 := unmangle(parts[2])
	nid, ok2 := unmangle(parts[3])
	id, ok3 := unmangle(parts[4])
	namespace, ok4 := unmangle(parts[7])
	nodeName, ok5 := unmangle(parts[8])
	enclave, ok6 := unmangle(parts[9])
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return EntityDescriptor{}, false
	}

	desc := EntityDescriptor{
		ZID:  zid,
		NID:  nid,
		ID:   id,
		Kind: kind,
		NodeInfo: NodeInfo{
			DomainID:  uint32(domainID),
			Namespace: namespace,
			NodeName:  nodeName,
			Enclave:   enclave,
		},
	}

	if kind == NodeKind {
		if len(parts) != 10 {
			return EntityDescriptor{}, false
		}
		return desc, true
	}

	if len(parts) != 14 {
		return EntityDescriptor{}, false
	}

	name, ok7 := unmangle(parts[10])
	typeName, ok8 := unmangle(parts[11])
	typeHash, ok9 := unmangle(parts[12])
	if !(ok7 && ok8 && ok9) {
		return EntityDescriptor{}, false
	}
	qos, ok10 := decodeQoS(parts[13])
	if !ok10 {
		return EntityDescriptor{}, false
	}

	desc.TopicInfo = &TopicInfo{Name: name, TypeName: typeName, TypeHash: typeHash, QoS: qos}
	desc.QoS = qos
	return desc, true
}

// mangle percent-escapes '/' and '%' and maps an empty string to the
// reserved placeholder token, so the result never contains a literal
// '/' and is never itself an empty string.
func mangle(s string) string {
	if s == "" {
		return emptyPlaceholder
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '/':
			b.WriteString("%2F")
		case '%':
			b.WriteString("%25")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// unmangle reverses mangle. A bare "%" (not part of a %XX escape) is
// the empty-string placeholder; any other malformed escape fails.
func unmangle(s string) (string, bool) {
	if s == emptyPlaceholder {
		return "", true
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", false
		}
		switch s[i+1 : i+3] {
		case "2F":
			b.WriteByte('/')
		case "25":
			b.WriteByte('%')
		default:
			return "", false
		}
		i += 2
	}
	return b.String(), true
}

func encodeQoS(q QoS) string {
	return strings.Join([]string{
		strconv.Itoa(int(q.Reliability)),
		strconv.Itoa(int(q.Durability)),
		strconv.Itoa(q.History),
		strconv.Itoa(q.Depth),
		strconv.FormatInt(int64(q.Deadline), 10),
		strconv.FormatInt(int64(q.Lifespan), 10),
		strconv.Itoa(q.Liveliness),
		strconv.FormatInt(int64(q.LivelinessLease), 10),
	}, ",")
}

func decodeQoS(tok string) (QoS, bool) {
	fields := strings.Split(tok, ",")
	if len(fields) != 8 {
		return QoS{}, false
	}
	ints := make([]int64, 8)
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return QoS{}, false
		}
		ints[i] = n
	}
	return QoS{
		Reliability:     Reliability(ints[0]),
		Durability:      Durability(ints[1]),
		History:         int(ints[2]),
		Depth:           int(ints[3]),
		Deadline:        time.Duration(ints[4]),
		Lifespan:        time.Duration(ints[5]),
		Liveliness:      int(ints[6]),
		LivelinessLease: time.Duration(ints[7]),
	}, true
}
