package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SMTPNotifier mails the operations address when a video permanently fails
// processing. End users never see raw codec errors; this is the only place a
// failure leaves the pipeline besides the video's FAILED status.
type SMTPNotifier struct {
	host   string
	port   int
	from   string
	to     string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from, to string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, to: to, logger: logger}
}

func (n *SMTPNotifier) NotifyVideoFailed(_ context.Context, videoID uuid.UUID, reason string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	subject := fmt.Sprintf("StreamHive - Video Processing Failed [%s]", videoID)
	body := fmt.Sprintf(
		"Video processing permanently failed.\r\n\r\n"+
			"Video ID: %s\r\n"+
			"Reason: %s\r\n\r\n"+
			"Inspect the job records and the dead-letter queue for details.\r\n\r\n"+
			"-- StreamHive Media Pipeline",
		videoID, reason,
	)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.from, n.to, subject, body,
	)

	if err := smtp.SendMail(addr, nil, n.from, []string{n.to}, []byte(msg)); err != nil {
		n.logger.Error("failed to send failure notification",
			zap.String("video_id", videoID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification sent", zap.String("video_id", videoID.String()))
	return nil
}
