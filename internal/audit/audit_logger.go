package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	Details       any       `json:"details"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogTransaction(transactionID, userID, direction, amount, status string) {
	event := Event{
		Timestamp:     time.Now(),
		EventType:     direction,
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        amount,
		Status:        status,
	}
	a.log(event)
}

func (a *Logger) LogStatusChange(transactionID, from, to string) {
	event := Event{
		Timestamp:     time.Now(),
		EventType:     "STATUS_CHANGE",
		TransactionID: transactionID,
		Status:        to,
		Details:       map[string]string{"from": from, "to": to},
	}
	a.log(event)
}

func (a *Logger) LogError(transactionID, userID string, err error) {
	event := Event{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TransactionID: transactionID,
		UserID:        userID,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
