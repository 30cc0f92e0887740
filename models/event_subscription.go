package models

// UserSubscription links a telegram chat to a beneficiary's confirmations
type UserSubscription struct {
	UserID        int    `json:"user_id" bson:"user_id"`
	User          string `json:"user" bson:"user"`
	ChatID        int64  `json:"chat_id" bson:"chat_id"`
	BeneficiaryId string `json:"beneficiary_id" bson:"beneficiary_id"`
}
