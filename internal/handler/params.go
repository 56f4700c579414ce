package handler

import (
	"net/url"
	"strconv"
)

// GetStrParam returns the named query parameter or def when absent or empty.
func GetStrParam(values url.Values, name, def string) string {
	if v := values.Get(name); v != "" {
		return v
	}
	return def
}

// GetIntParam returns the named query parameter as an int, or def when
// absent or not a number.
func GetIntParam(values url.Values, name string, def int) int {
	v := values.Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetBoolParam returns the named query parameter as a bool, or def when
// absent or not parseable.
func GetBoolParam(values url.Values, name string, def bool) bool {
	v := values.Get(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// AskRequestFromValues builds an AskRequest from HTTP query parameters,
// using zero values where the handler's configured defaults should apply.
func AskRequestFromValues(values url.Values) *AskRequest {
	return &AskRequest{
		Query:          GetStrParam(values, "query", ""),
		Site:           GetStrParam(values, "site", ""),
		ItemType:       GetStrParam(values, "item_type", ""),
		MinScore:       GetIntParam(values, "min_score", 0),
		MaxResults:     GetIntParam(values, "max_results", 0),
		ConversationID: GetStrParam(values, "conversation_id", ""),
		UserID:         GetStrParam(values, "user_id", ""),
	}
}
