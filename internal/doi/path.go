package doi

import "strings"

// SplitTarget 将 "DOI/文件名" 按最后一个 "/" 拆分。DOI 形如 prefix/suffix，
// 因此少于两个 "/" 时整个字符串都是 DOI，ok 为 false。不做任何解码或规范化。
func SplitTarget(target string) (doi, fileName string, ok bool) {
	if strings.Count(target, "/") < 2 {
		return target, "", false
	}
	idx := strings.LastIndex(target, "/")
	return target[:idx], target[idx+1:], true
}
