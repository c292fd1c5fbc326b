package models

// PayHere notification status codes.
const (
	PayHereStatusSuccess     = "2"
	PayHereStatusPending     = "0"
	PayHereStatusCancelled   = "-1"
	PayHereStatusFailed      = "-2"
	PayHereStatusChargedBack = "-3"
)

// PayHereCheckout is the signed form the client posts to the PayHere
// checkout page.
type PayHereCheckout struct {
	ActionURL  string `json:"actionUrl"`
	MerchantID string `json:"merchant_id"`
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	NotifyURL  string `json:"notify_url"`
	OrderID    string `json:"order_id"`
	Items      string `json:"items"`
	Currency   string `json:"currency"`
	Amount     string `json:"amount"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Country    string `json:"country"`
	Hash       string `json:"hash"`
}

// PayHereNotification is the form-encoded server callback.
type PayHereNotification struct {
	MerchantID    string
	OrderID       string
	PaymentID     string
	Amount        string
	Currency      string
	StatusCode    string
	StatusMessage string
	Method        string
	MD5Sig        string
}

func (n PayHereNotification) Succeeded() bool {
	return n.StatusCode == PayHereStatusSuccess
}
