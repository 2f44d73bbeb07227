package session

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// UserNamePlaceholder is replaced by each NotificationService with the
// name it announces the player as.
const UserNamePlaceholder = "{user_name}"

// NotificationService delivers session messages to some outside channel.
type NotificationService interface {
	Name() string
	Notify(ctx context.Context, msg string) error
}

// ExpandUserName substitutes the player name into msg.
func ExpandUserName(msg, userName string) string {
	if userName == "" {
		userName = "Someone"
	}
	return strings.ReplaceAll(msg, UserNamePlaceholder, userName)
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	userName string
}

func NewLogNotifier(userName string) *LogNotifier {
	return &LogNotifier{userName: userName}
}

func (n *LogNotifier) Name() string {
	return "LogNotifier"
}

func (n *LogNotifier) Notify(_ context.Context, msg string) error {
	log.Info().Str("notifier", n.Name()).Msg(ExpandUserName(msg, n.userName))
	return nil
}
