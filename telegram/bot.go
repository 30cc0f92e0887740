package telegram

import (
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"pixtip/internal"
	"pixtip/models"
	"pixtip/utility"
)

type Database interface {
	GetSubscriptions() ([]models.UserSubscription, error)
	AddSubscription(subscription *models.UserSubscription) error
	DeleteSubscription(subscription *models.UserSubscription) error
	GetTipRequests(userId string, limit int64) ([]*models.TipRequest, error)
}

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TgBot implements EventHandler
type TgBot struct {
	api           *tgbotapi.BotAPI
	sender        Sender
	database      Database
	mutex         sync.Mutex
	subscriptions map[int64][]models.UserSubscription
	event         chan MessageContent
	send          chan MessageContent
}

type MessageContent struct {
	ChatID        int64
	BeneficiaryId string
	Text          string
}

func NewBot(apiKey string) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(apiKey)
	if err != nil {
		return nil, err
	}
	tgBot := newBot(api)
	tgBot.api = api
	return tgBot, nil
}

func newBot(sender Sender) *TgBot {
	return &TgBot{
		sender:        sender,
		subscriptions: make(map[int64][]models.UserSubscription),
		event:         make(chan MessageContent, 100),
		send:          make(chan MessageContent, 100),
	}
}

// SetDatabase attach database service
func (b *TgBot) SetDatabase(database Database) {
	b.database = database
}

func (b *TgBot) Start() {
	if b.database != nil {
		subscriptions, err := b.database.GetSubscriptions()
		if err != nil {
			log.Printf("bot: error getting subscriptions: %v", err)
		} else {
			b.mutex.Lock()
			for _, subscription := range subscriptions {
				b.subscriptions[subscription.ChatID] = append(b.subscriptions[subscription.ChatID], subscription)
			}
			b.mutex.Unlock()
		}
	}
	go b.sendPump()
	go b.eventPump()
	if b.api != nil {
		go b.updatesPump()
	}
}

// Start listening for updates
func (b *TgBot) updatesPump() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		log.Printf("bot: error getting updates: %v", err)
		return
	}
	for update := range updates {
		if update.Message == nil || !update.Message.IsCommand() {
			continue
		}
		b.handleCommand(update.Message)
	}
}

func (b *TgBot) handleCommand(message *tgbotapi.Message) {
	chatId := message.Chat.ID
	switch message.Command() {
	case "start":
		beneficiaryId := strings.TrimSpace(message.CommandArguments())
		if beneficiaryId == "" {
			b.send <- MessageContent{ChatID: chatId, Text: "Usage: `/start <beneficiary id>`"}
			return
		}
		subscription := models.UserSubscription{
			UserID:        message.From.ID,
			User:          message.From.UserName,
			ChatID:        chatId,
			BeneficiaryId: beneficiaryId,
		}
		msg := fmt.Sprintf("Hello *%v*, you are now subscribed to tips of `%v`", sanitize(message.From.UserName), sanitize(beneficiaryId))
		if b.database != nil {
			if err := b.database.AddSubscription(&subscription); err != nil {
				log.Printf("bot: error adding subscription: %v", err)
				b.send <- MessageContent{ChatID: chatId, Text: fmt.Sprintf("Error adding subscription:\n `%v`", sanitize(err.Error()))}
				return
			}
		}
		b.subscribe(subscription)
		b.send <- MessageContent{ChatID: chatId, Text: msg}
	case "stop":
		b.mutex.Lock()
		delete(b.subscriptions, chatId)
		b.mutex.Unlock()
		if b.database != nil {
			err := b.database.DeleteSubscription(&models.UserSubscription{UserID: message.From.ID, ChatID: chatId})
			if err != nil {
				log.Printf("bot: error deleting subscription: %v", err)
			}
		}
		b.send <- MessageContent{ChatID: chatId, Text: "Your subscription has been removed"}
	case "status":
		b.send <- MessageContent{ChatID: chatId, Text: b.composeStatusMessage(chatId)}
	}
}

func (b *TgBot) subscribe(subscription models.UserSubscription) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for _, s := range b.subscriptions[subscription.ChatID] {
		if s.BeneficiaryId == subscription.BeneficiaryId {
			return
		}
	}
	b.subscriptions[subscription.ChatID] = append(b.subscriptions[subscription.ChatID], subscription)
}

// subscribers returns chats following the beneficiary
func (b *TgBot) subscribers(beneficiaryId string) []int64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	var chats []int64
	for chatId, list := range b.subscriptions {
		for _, s := range list {
			if s.BeneficiaryId == beneficiaryId {
				chats = append(chats, chatId)
				break
			}
		}
	}
	return chats
}

// eventPump sending events to subscribers of the beneficiary
func (b *TgBot) eventPump() {
	for event := range b.event {
		for _, chatId := range b.subscribers(event.BeneficiaryId) {
			b.sendMessage(chatId, event.Text)
		}
	}
}

// sendPump sending messages to users
func (b *TgBot) sendPump() {
	for event := range b.send {
		b.sendMessage(event.ChatID, event.Text)
	}
}

// sendMessage common routine to send a message via bot API
func (b *TgBot) sendMessage(id int64, text string) {
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "MarkdownV2"
	_, err := b.sender.Send(msg)
	if err != nil {
		// maybe error was while parsing, so we can send a message about this error
		msg = tgbotapi.NewMessage(id, fmt.Sprintf("Error: %v", err))
		_, err = b.sender.Send(msg)
		if err != nil {
			log.Printf("bot: error sending message: %v", err)
		}
	}
}

func (b *TgBot) OnPaymentRequested(event *internal.PaymentEvent) {}

func (b *TgBot) OnPaymentConfirmed(event *internal.PaymentEvent) {
	b.event <- MessageContent{BeneficiaryId: event.BeneficiaryId, Text: composeTipMessage(event)}
}

func (b *TgBot) OnPaymentAlert(event *internal.PaymentEvent) {
	if !event.GatewayFailed {
		return
	}
	msg := fmt.Sprintf("*Gateway unavailable*: `%v`\n", sanitize(event.Info))
	msg += "Tips fall back to manual confirmation, check the access token\n"
	b.event <- MessageContent{BeneficiaryId: event.BeneficiaryId, Text: msg}
}

func composeTipMessage(event *internal.PaymentEvent) string {
	msg := fmt.Sprintf("*%v* tip", sanitize(utility.FormatBRL(event.Amount)))
	if event.PayerName != "" {
		msg += fmt.Sprintf(" from *%v*", sanitize(event.PayerName))
	}
	msg += "\n"
	if event.Song != "" {
		msg += fmt.Sprintf("Song: `%v`", sanitize(event.Song))
		if event.Artist != "" {
			msg += fmt.Sprintf(" by %v", sanitize(event.Artist))
		}
		msg += "\n"
	}
	if event.Message != "" {
		msg += fmt.Sprintf("%v\n", sanitize(utility.Truncate(event.Message, 200)))
	}
	msg += fmt.Sprintf("Confirmation: %v\n", sanitize(event.Mode))
	return msg
}

// compose status message
func (b *TgBot) composeStatusMessage(chatId int64) string {
	b.mutex.Lock()
	list := append([]models.UserSubscription(nil), b.subscriptions[chatId]...)
	b.mutex.Unlock()

	if len(list) == 0 {
		return "No active subscriptions, use `/start <beneficiary id>`"
	}
	msg := "Status info:\n\n"
	for _, s := range list {
		msg += fmt.Sprintf("*%v*\n", sanitize(s.BeneficiaryId))
		if b.database == nil {
			continue
		}
		requests, err := b.database.GetTipRequests(s.BeneficiaryId, 3)
		if err != nil {
			log.Printf("bot: error getting tip requests: %v", err)
			msg += fmt.Sprintf("Error getting tips:\n `%v`\n", sanitize(err.Error()))
			continue
		}
		for _, r := range requests {
			msg += fmt.Sprintf("`%v` %v, %v\n", sanitize(utility.FormatBRL(r.Amount)), sanitize(r.SongTitle), sanitize(utility.TimeAgo(r.CreatedAt)))
		}
		msg += "\n"
	}
	msg += fmt.Sprintf("Active subscriptions: %v", len(list))
	return msg
}

func sanitize(input string) string {
	reservedChars := "\\`*_{}[]()#+-.!|~>="
	var sanitized strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized.WriteRune('\\')
		}
		sanitized.WriteRune(char)
	}
	return sanitized.String()
}
