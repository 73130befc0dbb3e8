package registration

// CreateCardRequest is the body of POST /api/createboltcard.
type CreateCardRequest struct {
	CardName     string `json:"card_name"`
	TxLimitSats  *int64 `json:"tx_limit_sats,omitempty"`
	DayLimitSats *int64 `json:"day_limit_sats,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

// CreateCardResponse is returned from POST /api/createboltcard: a URL
// the operator hands to the NFC programmer app, which in turn calls
// GET /new?a=<code> to fetch the five keys once.
type CreateCardResponse struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

// CardRegistrationResponse is returned from GET /new?a=<code>: the Bolt
// Card programmer app's well-known response shape, naming all five
// AES-128 keys (hex-encoded) and the lnurlw base URL to burn onto the
// card.
type CardRegistrationResponse struct {
	ProtocolName    string `json:"protocol_name"`
	ProtocolVersion int    `json:"protocol_version"`
	CardName        string `json:"card_name"`
	LNURLWBase      string `json:"lnurlw_base"`
	K0              string `json:"k0"`
	K1              string `json:"k1"`
	K2              string `json:"k2"`
	K3              string `json:"k3"`
	K4              string `json:"k4"`
}
