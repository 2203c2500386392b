package ibkr

import (
	"strconv"
	"strings"
)

// Market-data field codes requested on the stream and decoded from data frames.
// This is the single canonical table; the alternate codes some gateway versions
// emit (83 alt-last, 66 alt-size) are neither requested nor decoded.
const (
	FieldLastPrice  = "31" // last trade price
	FieldBid        = "84" // best bid
	FieldAsk        = "85" // best ask
	FieldLastSize   = "3"  // last trade size
	FieldVolume     = "8"  // cumulative day volume
	FieldServerTime = "7"  // server timestamp, epoch milliseconds
)

// FieldConID is the key carrying the contract id on every data record.
const FieldConID = "conid"

// Control-frame shape: {"topic": "system", "success": "<token>"}.
const (
	FieldTopic   = "topic"
	FieldSuccess = "success"
	TopicSystem  = "system"
)

// OpSubscribe is the opcode of the streaming market-data command.
const OpSubscribe = "smd"

// StreamFields is the field list sent with every subscription.
var StreamFields = []string{
	FieldLastPrice,
	FieldBid,
	FieldAsk,
	FieldLastSize,
	FieldVolume,
	FieldServerTime,
}

// EncodeSubscribe builds "smd+<id,id>+<field,field>+<token>".
func EncodeSubscribe(ids []ConID, token string) string {
	conids := make([]string, len(ids))
	for i, id := range ids {
		conids[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join([]string{
		OpSubscribe,
		strings.Join(conids, ","),
		strings.Join(StreamFields, ","),
		token,
	}, "+")
}
