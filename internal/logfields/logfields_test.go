package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"Event", KeyEvent, "STATE_UPDATED", Event("STATE_UPDATED")},
		{"InterfaceKind", KeyInterfaceKind, "forums", InterfaceKind("forums")},
		{"InterfaceName", KeyInterfaceName, "wgf-forum0", InterfaceName("wgf-forum0")},
		{"StatePath", KeyStatePath, "/tmp/state.yaml", StatePath("/tmp/state.yaml")},
		{"Operation", KeyOperation, "update", Operation("update")},
		{"OperationID", KeyOperationID, "abc", OperationID("abc")},
		{"LockMode", KeyLockMode, "exclusive", LockMode("exclusive")},
		{"Subject", KeySubject, "wgf.events", Subject("wgf.events")},
	}
	for _, c := range cases {
		if c.attr.Key != c.attrKey {
			t.Errorf("%s: key = %q, want %q", c.name, c.attr.Key, c.attrKey)
		}
		if c.attr.Value.String() != c.attrVal {
			t.Errorf("%s: value = %q, want %q", c.name, c.attr.Value.String(), c.attrVal)
		}
	}
}

func TestErrorNil(t *testing.T) {
	if got := Error(nil).Value.String(); got != "" {
		t.Errorf("Error(nil) = %q, want empty", got)
	}
	if got := Error(errors.New("boom")).Value.String(); got != "boom" {
		t.Errorf("Error(boom) = %q", got)
	}
}
