package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatus     = "status"
	KeyRequestID  = "request_id"
	KeyRemoteAddr = "remote_addr"
	KeyEntity     = "entity"
	KeyEntityID   = "entity_id"
	KeyAction     = "action"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func RequestID(id string) slog.Attr   { return slog.String(KeyRequestID, id) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func Entity(kind string) slog.Attr    { return slog.String(KeyEntity, kind) }
func EntityID(id uint32) slog.Attr    { return slog.Int64(KeyEntityID, int64(id)) }
func Action(a string) slog.Attr       { return slog.String(KeyAction, a) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
