package internal

import "pixtip/models"

type Database interface {
	WriteLogMessage(data Data) error
	ReadLog() (interface{}, error)

	GetBeneficiary(userId string) (*models.Beneficiary, error)

	SaveTipRequest(request *models.TipRequest) error
	GetTipRequests(userId string, limit int64) ([]*models.TipRequest, error)

	SavePaymentOrder(order *models.PaymentOrder) error
	UpdatePaymentOrder(order *models.PaymentOrder) error
	GetPaymentOrder(sessionId string) (*models.PaymentOrder, error)

	GetSubscriptions() ([]models.UserSubscription, error)
	AddSubscription(subscription *models.UserSubscription) error
	DeleteSubscription(subscription *models.UserSubscription) error
}

type Data interface {
	DataType() string
}
