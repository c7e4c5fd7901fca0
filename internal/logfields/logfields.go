package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyEvent         = "event"
	KeyInterfaceKind = "interface_kind"
	KeyInterfaceName = "interface_name"
	KeyStatePath     = "state_path"
	KeyPath          = "path"
	KeyOperation     = "operation"
	KeyOperationID   = "operation_id"
	KeyLockMode      = "lock_mode"
	KeyDurationMS    = "duration_ms"
	KeySubject       = "subject"
	KeyError         = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Event(name string) slog.Attr         { return slog.String(KeyEvent, name) }
func InterfaceKind(kind string) slog.Attr { return slog.String(KeyInterfaceKind, kind) }
func InterfaceName(name string) slog.Attr { return slog.String(KeyInterfaceName, name) }
func StatePath(p string) slog.Attr        { return slog.String(KeyStatePath, p) }
func Path(p string) slog.Attr             { return slog.String(KeyPath, p) }
func Operation(op string) slog.Attr       { return slog.String(KeyOperation, op) }
func OperationID(id string) slog.Attr     { return slog.String(KeyOperationID, id) }
func LockMode(mode string) slog.Attr      { return slog.String(KeyLockMode, mode) }
func DurationMS(ms float64) slog.Attr     { return slog.Float64(KeyDurationMS, ms) }
func Subject(s string) slog.Attr          { return slog.String(KeySubject, s) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
