package search

// Request is the JSON body for the transfer-index search endpoint.
type Request struct {
	Query   Query   `json:"query"`
	Options Options `json:"options"`
	Before  string  `json:"before,omitempty"` // signature cursor, newest-first paging
}

// Query filters the search by account, mint and transaction type.
type Query struct {
	Accounts []string `json:"accounts,omitempty"`
	Mints    []string `json:"mints"`
	Types    []string `json:"types"`
}

// Options control page size, ordering and commitment level.
type Options struct {
	Limit      int    `json:"limit"`
	SortOrder  string `json:"sortOrder"`
	Commitment string `json:"commitment"`
}

// Default option values.
const (
	SortOrderDesc       = "DESC"
	CommitmentConfirmed = "CONFIRMED"
	TypeTransfer        = "TRANSFER"
)

// EnrichedTransaction is one search result: a transaction with its token
// transfers already segmented by the index.
type EnrichedTransaction struct {
	Signature      string          `json:"signature"`
	Slot           int64           `json:"slot"`
	Timestamp      int64           `json:"timestamp"` // Unix seconds
	TokenTransfers []TokenTransfer `json:"tokenTransfers"`
}

// TokenTransfer is an index-resolved transfer leg inside a transaction.
type TokenTransfer struct {
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	TokenAmount     float64 `json:"tokenAmount"` // display units
	Mint            string  `json:"mint"`
}
