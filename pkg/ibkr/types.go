package ibkr

import (
	"bytes"
	"fmt"
	"strconv"
)

// ConID is the broker-assigned contract identifier.
type ConID int64

func (c ConID) String() string {
	return strconv.FormatInt(int64(c), 10)
}

// UnmarshalJSON accepts both 265598 and "265598"; the gateway uses either.
func (c *ConID) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("conid %s: %w", b, err)
	}
	*c = ConID(n)
	return nil
}

// APIError represents a non-success response from the gateway REST API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway api error %d: %s", e.StatusCode, e.Message)
}

// errorResponse is the object the gateway returns instead of a list on failure.
type errorResponse struct {
	Error string `json:"error"`
}

// SecDefSearchResult is one row of /iserver/secdef/search.
type SecDefSearchResult struct {
	ConID       ConID           `json:"conid"`
	Symbol      string          `json:"symbol"`
	Description string          `json:"description"` // e.g. "NASDAQ"
	CompanyName string          `json:"companyName"`
	Sections    []SecDefSection `json:"sections"`
}

type SecDefSection struct {
	SecType  string `json:"secType"` // "STK", "OPT", "WAR", ...
	Months   string `json:"months"`  // "JUN25;JUL25;..." for derivatives
	Exchange string `json:"exchange"`
}

// HasSecTypes reports whether every given security type is listed in Sections.
func (r SecDefSearchResult) HasSecTypes(types ...string) bool {
	for _, want := range types {
		found := false
		for _, s := range r.Sections {
			if s.SecType == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// InfoQuery selects derivative contracts on /iserver/secdef/info.
type InfoQuery struct {
	ConID    ConID  // underlying
	SecType  string // "OPT"
	Month    string // "JUN25"
	Right    string // "C" or "P"
	Strike   string // plain dollars, "180" or "182.5"
	Exchange string // "SMART"
}

// SecDefInfo is one row of /iserver/secdef/info.
type SecDefInfo struct {
	ConID        ConID  `json:"conid"`
	Symbol       string `json:"symbol"`
	SecType      string `json:"secType"`
	Right        string `json:"right"`
	MaturityDate string `json:"maturityDate"` // YYYYMMDD
	Exchange     string `json:"exchange"`
}
