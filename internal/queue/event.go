// Package queue carries verification code deliveries over RabbitMQ.
package queue

// CodeIssuedEvent is published whenever a verification code is generated.
// It holds the plain code because the consumer is the delivery channel.
type CodeIssuedEvent struct {
	UserID    uint64 `json:"user_id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Purpose   string `json:"purpose"`
	Code      string `json:"code"`
	ExpiresAt string `json:"expires_at"`
	IssuedAt  string `json:"issued_at"`
}
