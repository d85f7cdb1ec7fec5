package idempotency

import "testing"

func TestKeyIsScopedByGateway(t *testing.T) {
	s := NewStore(nil, 0)
	if got := s.Key("VCB", "111"); got != "idem:VCB:111" {
		t.Errorf("Key = %q", got)
	}
	if s.Key("VCB", "111") == s.Key("MBBank", "111") {
		t.Error("keys collide across gateways")
	}
}
