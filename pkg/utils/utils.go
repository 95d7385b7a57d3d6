package utils

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISOMillisLayout 与前端约定的时间格式，例如 2024-05-01T08:00:00.000Z
const ISOMillisLayout = "2006-01-02T15:04:05.000Z07:00"

var entityIDPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// IsValidEntityID 校验 shard.realm.num 格式的 token / account id
func IsValidEntityID(id string) bool {
	return entityIDPattern.MatchString(id)
}

// ConsensusSeconds 只取 consensus_timestamp 的秒部分
func ConsensusSeconds(ts string) (int64, error) {
	secPart, _, _ := strings.Cut(strings.TrimSpace(ts), ".")
	return strconv.ParseInt(secPart, 10, 64)
}

// ConsensusAfter consensus_timestamp 是否严格晚于 sec 秒整，纳秒部分参与比较
func ConsensusAfter(ts string, sec int64) (bool, error) {
	secPart, nanoPart, _ := strings.Cut(strings.TrimSpace(ts), ".")
	s, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return false, err
	}
	if nanoPart != "" && !isDigits(nanoPart) {
		return false, &strconv.NumError{Func: "ConsensusAfter", Num: ts, Err: strconv.ErrSyntax}
	}
	if s != sec {
		return s > sec, nil
	}
	return strings.Trim(nanoPart, "0") != "", nil
}

// FormatISOSeconds 按秒截断后输出 ISO-8601 时间
func FormatISOSeconds(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(ISOMillisLayout)
}

// DecodeMemo 解码 base64 memo，空值或非法编码返回空串
func DecodeMemo(memoBase64 string) string {
	if memoBase64 == "" {
		return ""
	}
	data, err := base64.StdEncoding.DecodeString(memoBase64)
	if err != nil {
		return ""
	}
	return string(data)
}

// EntityDirName 每个 token 独立的数据目录名
func EntityDirName(tokenID string) string {
	return tokenID + "_token_data"
}
