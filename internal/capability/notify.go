package capability

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/solatis/mario/internal/logging"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsMethod = notificationsDest + ".Notify"

	appName = "mario"
)

// DBusNotifier sends desktop notifications over the session bus. It owns its
// connection; callers Close it when done.
type DBusNotifier struct {
	conn   *dbus.Conn
	logger zerolog.Logger
}

// NewDBusNotifier connects to the session bus.
func NewDBusNotifier() (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DBusNotifier{conn: conn, logger: logging.GetLogger("capability.notify")}, nil
}

// Notify implements rules.Notifier.
func (n *DBusNotifier) Notify(title, body string) error {
	obj := n.conn.Object(notificationsDest, notificationsPath)
	call := obj.Call(notificationsMethod, 0,
		appName,                   // app_name
		uint32(0),                 // replaces_id
		"",                        // app_icon
		title,                     // summary
		body,                      // body
		[]string{},                // actions
		map[string]dbus.Variant{}, // hints
		int32(-1),                 // expire_timeout: server default
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err == nil {
		n.logger.Debug().Uint32("id", id).Str("title", title).Msg("Notification sent")
	}
	return nil
}

// Close releases the bus connection.
func (n *DBusNotifier) Close() error {
	return n.conn.Close()
}

// LogNotifier writes notifications to the log instead of the desktop. Used
// when notifications are disabled or no session bus is available.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier returns a notifier logging at info level.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: logging.GetLogger("capability.notify")}
}

// Notify implements rules.Notifier.
func (n *LogNotifier) Notify(title, body string) error {
	n.logger.Info().Str("title", title).Str("body", body).Msg("Notification")
	return nil
}
