package federation

import (
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestSanitizeSessionListStripsUnknownFields(t *testing.T) {
	raw := []byte(`[{"name":"work","pid":42,"command":"bash","evil":"payload","server":"a"}]`)
	out, err := SanitizeSessionList(raw)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "evil") {
		t.Errorf("unknown field kept: %s", out)
	}
	for _, want := range []string{"work", "42", "bash"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}

func TestSanitizeSessionListRejectsNonArray(t *testing.T) {
	if _, err := SanitizeSessionList([]byte(`{"name":"x"}`)); err == nil {
		t.Error("object accepted as session list")
	}
	if _, err := SanitizeSessionList([]byte(`"str"`)); err == nil {
		t.Error("string accepted as session list")
	}
}

func TestSanitizeSessionListRejectsMissingName(t *testing.T) {
	if _, err := SanitizeSessionList([]byte(`[{"pid":1}]`)); err == nil {
		t.Error("entry without name accepted")
	}
	if _, err := SanitizeSessionList([]byte(`[{"name":123}]`)); err == nil {
		t.Error("numeric name accepted")
	}
}

func TestSanitizeSessionListRejectsInvalidNames(t *testing.T) {
	bad := []string{
		`[{"name":""}]`,
		`[{"name":"has space"}]`,
		`[{"name":"evil/slash"}]`,
		fmt.Sprintf(`[{"name":%q}]`, strings.Repeat("a", 101)),
	}
	for _, raw := range bad {
		if _, err := SanitizeSessionList([]byte(raw)); err == nil {
			t.Errorf("invalid name accepted: %s", raw)
		}
	}
}

func TestSanitizeSessionListRejectsOversizedArray(t *testing.T) {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i <= maxProxiedSessions; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"name":"s%d"}`, i)
	}
	b.WriteString("]")
	if _, err := SanitizeSessionList([]byte(b.String())); err == nil {
		t.Error("oversized list accepted")
	}
}

func TestSanitizeProxyResponse(t *testing.T) {
	if _, err := SanitizeProxyResponse([]byte(`{"ok":true}`), 1024); err != nil {
		t.Errorf("object rejected: %v", err)
	}
	if _, err := SanitizeProxyResponse([]byte(`[1,2,3]`), 1024); err != nil {
		t.Errorf("array rejected: %v", err)
	}
	if _, err := SanitizeProxyResponse([]byte(`"bare string"`), 1024); err == nil {
		t.Error("bare string accepted")
	}
	if _, err := SanitizeProxyResponse([]byte(`42`), 1024); err == nil {
		t.Error("bare number accepted")
	}
	if _, err := SanitizeProxyResponse([]byte(`not json`), 1024); err == nil {
		t.Error("invalid JSON accepted")
	}
	big := "[" + strings.Repeat("1,", 600) + "1]"
	if _, err := SanitizeProxyResponse([]byte(big), 100); err == nil {
		t.Error("oversized body accepted")
	}
}

func TestIPAccessBlocklistDeniesFirst(t *testing.T) {
	a := NewIPAccess([]string{"10.0.0.0/8"}, []string{"10.1.0.0/16"})
	if err := a.Check(mustIP(t, "10.1.2.3")); err == nil {
		t.Error("blocklisted IP allowed despite allowlist")
	}
}

func TestIPAccessAllowlistImpliesDeny(t *testing.T) {
	a := NewIPAccess(nil, []string{"192.168.0.0/16"})
	if err := a.Check(mustIP(t, "192.168.1.1")); err != nil {
		t.Errorf("allowlisted IP denied: %v", err)
	}
	if err := a.Check(mustIP(t, "10.0.0.1")); err == nil {
		t.Error("unlisted IP allowed with allowlist configured")
	}
}

func TestIPAccessUnconfiguredAllowsAll(t *testing.T) {
	a := NewIPAccess(nil, nil)
	if !a.Unconfigured() {
		t.Error("expected unconfigured")
	}
	if err := a.Check(mustIP(t, "10.0.0.1")); err != nil {
		t.Errorf("denied: %v", err)
	}
}

func TestIPAccessInvalidCIDRSkipped(t *testing.T) {
	a := NewIPAccess([]string{"not-a-cidr", "10.0.0.0/8"}, nil)
	if err := a.Check(mustIP(t, "10.0.0.1")); err == nil {
		t.Error("valid blocklist entry not applied")
	}
}

func mustIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	if ip == nil {
		t.Fatalf("bad IP %q", s)
	}
	return ip
}
