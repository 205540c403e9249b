package wsrouter

import "context"

type ctxKey string

const (
	messageTypeKey ctxKey = "message_type"
	ackIdKey       ctxKey = "ack_id"
)

func GetMessageTypeFromCtx(ctx context.Context) string {
	messageType, _ := ctx.Value(messageTypeKey).(string)
	return messageType
}

// GetAckIdFromCtx returns the ack id of the message being handled or "" if the
// sender does not expect an ack.
func GetAckIdFromCtx(ctx context.Context) string {
	ackId, _ := ctx.Value(ackIdKey).(string)
	return ackId
}
