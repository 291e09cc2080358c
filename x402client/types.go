package x402client

// PaymentRequirements is one payment option presented by an upstream x402
// resource in its 402 response.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description,omitempty"`
	MimeType          string `json:"mimeType,omitempty"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds,omitempty"`
	Asset             string `json:"asset"`
}

// PaymentRequiredResponse is the JSON body of an upstream 402 response.
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// SettleRequest asks the payment rail to execute an upstream payment. It is
// not the wire form: Settle re-encodes the amount as a decimal string.
type SettleRequest struct {
	Amount   int64
	Currency string
	Network  string
}

// SettleResult is the payment rail's verdict on a settlement attempt. Any
// non-success requires the caller to refund the sponsor debit.
type SettleResult struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	ErrorReason     string `json:"errorReason,omitempty"`
}
