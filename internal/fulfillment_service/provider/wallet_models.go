package provider

// WalletAuthRequestBody is the payload of POST /auth/authenticate/.
type WalletAuthRequestBody struct {
	APIKey      string   `json:"api_key"`
	PhoneNumber string   `json:"phone_number"`
	Mnemonics   []string `json:"mnemonics"`
	Version     string   `json:"version,omitempty"`
}

type WalletAuthResponse struct {
	Token string `json:"token"`
}

// WalletOrderRequestBody is the payload of POST /order/stars/.
type WalletOrderRequestBody struct {
	Username string `json:"username"`
	Quantity int    `json:"quantity"`
}

// Balance field names in precedence order, per response shape.
var (
	flatBalanceKeys   = []string{"balance", "amount", "wallet_balance", "available_balance"}
	walletBalanceKeys = []string{"balance", "amount", "available"}
	dataBalanceKeys   = []string{"balance", "amount"}
)
