package utils

import "testing"

func TestNormalizeURL(t *testing.T) {
	normalized, domain, err := NormalizeURL("https://Example.com/path?utm_source=test&x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain != "example.com" {
		t.Fatalf("unexpected domain: %s", domain)
	}
	if normalized != "https://example.com/path?x=1" {
		t.Fatalf("unexpected normalized url: %s", normalized)
	}
}

func TestURLHosts(t *testing.T) {
	hosts := URLHosts("see https://Example.com/a, then http://example.com/b and (https://bücher.de/x)")
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %v", hosts)
	}
	if hosts[0] != "example.com" {
		t.Fatalf("unexpected first host: %s", hosts[0])
	}
	if hosts[1] != "xn--bcher-kva.de" {
		t.Fatalf("expected punycode host, got %s", hosts[1])
	}
}

func TestURLHostsEmpty(t *testing.T) {
	if hosts := URLHosts("no links here"); len(hosts) != 0 {
		t.Fatalf("expected no hosts, got %v", hosts)
	}
}
