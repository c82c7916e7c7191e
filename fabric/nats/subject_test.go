package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectForTopic_TrimsAndJoinsWithDots(t *testing.T) {
	assert.Equal(t, "cmd_vel", SubjectForTopic("/cmd_vel"))
	assert.Equal(t, "robot1.odom", SubjectForTopic("/robot1/odom"))
}

func TestSubjectForTopic_SanitizesDisallowedCharacters(t *testing.T) {
	assert.Equal(t, "a_b.c_d", SubjectForTopic("/a b/c.d"))
}

func TestSubjectForTopic_EmptyNameYieldsPlaceholder(t *testing.T) {
	assert.Equal(t, "_", SubjectForTopic(""))
	assert.Equal(t, "_", SubjectForTopic("/"))
}

func TestKeyExprToKVKey_RoundTrips(t *testing.T) {
	keyExpr := "@rmw/v1/z1.n1.p1"
	kvKey := keyExprToKVKey(keyExpr)
	assert.Equal(t, keyExpr, kvKeyToKeyExpr(kvKey))
}
