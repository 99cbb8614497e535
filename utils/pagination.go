package utils

import (
	"net/url"
	"strconv"
)

const pageSizeDefault = 20
const pageSizeMax = 100

// GetPaginationParams calculates the offset and limit for pagination based on the provided values.
// If offset or limit are nil, default values are used. The limit is capped at a maximum value.
func GetPaginationParams(offset *int, limit *int) (int, int) {
	finalOffset := 0
	finalLimit := pageSizeDefault

	if offset != nil && *offset >= 0 {
		finalOffset = *offset
	}

	if limit != nil && *limit > 0 {
		finalLimit = min(*limit, pageSizeMax)
	}

	return finalOffset, finalLimit
}

// ParsePagination reads the offset and limit query parameters. Missing or
// malformed values fall back to the defaults of GetPaginationParams.
func ParsePagination(query url.Values) (int, int) {
	return GetPaginationParams(queryInt(query, "offset"), queryInt(query, "limit"))
}

func queryInt(query url.Values, key string) *int {
	raw := query.Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}
