package modem

import "sort"

// 升级结束码 (+QIND: "FOTA","END",<err>)
var fotaCodes = map[int]string{
	0:   "upgrade succeeded",
	504: "upgrade failed",
	505: "package checksum error",
	506: "firmware MD5 check error",
	507: "package version mismatch",
	552: "package project name mismatch",
	553: "package baseline name mismatch",
}

// HTTP 下载错误码 (+QIND: "FOTA","HTTPEND",<err>)
var httpCodes = map[int]string{
	0:   "download succeeded",
	701: "unknown error",
	702: "timeout",
	703: "busy",
	711: "URL error",
	714: "DNS error",
	716: "socket connect error",
}

// FTP 下载错误码
var ftpCodes = map[int]string{
	0:   "download succeeded",
	601: "unknown error",
	602: "timeout",
	611: "open file failed",
	625: "login failed",
}

// Code 错误码说明。
type Code struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

// DescribeCode 返回升级结束码的说明。
func DescribeCode(code int) string {
	if s, ok := fotaCodes[code]; ok {
		return s
	}
	return "unknown error"
}

// DescribeHTTPCode 返回 HTTP 下载结束码的说明。
func DescribeHTTPCode(code int) string {
	if s, ok := httpCodes[code]; ok {
		return s
	}
	return "unknown error"
}

// CodeTables 返回全部错误码表，按码值排序。
func CodeTables() map[string][]Code {
	return map[string][]Code{
		"fota": sortedCodes(fotaCodes),
		"http": sortedCodes(httpCodes),
		"ftp":  sortedCodes(ftpCodes),
	}
}

func sortedCodes(m map[int]string) []Code {
	list := make([]Code, 0, len(m))
	for code, desc := range m {
		list = append(list, Code{Code: code, Description: desc})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list
}
