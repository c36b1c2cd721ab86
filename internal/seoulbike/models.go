package seoulbike

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Seoul OpenAPI response structures. Numeric fields arrive as either JSON
// strings or numbers depending on the row, hence looseNumber.

type bikeListResponse struct {
	RentBikeStatus *bikeListRoot `json:"rentBikeStatus"`
}

type bikeListRoot struct {
	ListTotalCount json.Number    `json:"list_total_count"`
	Result         bikeListResult `json:"RESULT"`
	Rows           []bikeListRow  `json:"row"`
}

type bikeListResult struct {
	Code    string `json:"CODE"`
	Message string `json:"MESSAGE"`
}

type bikeListRow struct {
	StationID                string      `json:"stationId"`
	StationName              string      `json:"stationName"`
	StationLatitude          looseNumber `json:"stationLatitude"`
	StationLongitude         looseNumber `json:"stationLongitude"`
	ParkingBikeTotCnt        looseNumber `json:"parkingBikeTotCnt"`
	ParkingBikeTotCntGeneral looseNumber `json:"parkingBikeTotCntGeneral"`
	ParkingBikeTotCntTeen    looseNumber `json:"parkingBikeTotCntTeen"`
	ParkingBikeTotCntRepair  looseNumber `json:"parkingBikeTotCntRepair"`
	RackTotCnt               looseNumber `json:"rackTotCnt"`
}

// looseNumber accepts a JSON number or a numeric string.
type looseNumber string

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		*n = looseNumber(strings.TrimSpace(unquoted))
		return nil
	}
	*n = looseNumber(s)
	return nil
}

// Int parses the value as an integer, returning 0 when unparseable.
func (n looseNumber) Int() int {
	return n.IntDefault(0)
}

// IntDefault parses the value as an integer with a fallback.
func (n looseNumber) IntDefault(def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(string(n)))
	if err != nil {
		return def
	}
	return v
}

// Float parses the value as a float, returning 0 when unparseable.
func (n looseNumber) Float() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	if err != nil {
		return 0
	}
	return v
}
