package models

import "time"

const TipRequestConfirmed = "confirmed"

// SongRequest is what the payer asks the artist to play
type SongRequest struct {
	SongTitle  string `json:"song_title" bson:"song_title"`
	ArtistName string `json:"artist_name" bson:"artist_name"`
	Cover      string `json:"cover" bson:"cover"`
	UserName   string `json:"user_name" bson:"user_name"`
	Message    string `json:"message" bson:"message"`
}

// TipRequest is the persisted record of a confirmed tip, stored in the requests collection
type TipRequest struct {
	UserId     string    `json:"user_id" bson:"user_id"`
	SessionId  string    `json:"session_id" bson:"session_id"`
	SongTitle  string    `json:"song_title" bson:"song_title"`
	ArtistName string    `json:"artist_name" bson:"artist_name"`
	Cover      string    `json:"cover" bson:"cover"`
	UserName   string    `json:"user_name" bson:"user_name"`
	Message    string    `json:"message" bson:"message"`
	Amount     float64   `json:"amount" bson:"amount"`
	Mode       string    `json:"mode" bson:"mode"`
	TrackingId string    `json:"tracking_id,omitempty" bson:"tracking_id"`
	Status     string    `json:"status" bson:"status"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}
