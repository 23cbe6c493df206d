package common

import (
	"sort"
	"strings"

	"github.com/devopsext/utils"
)

func expandEnv(v string) string {

	if !strings.HasPrefix(v, "${") || !strings.HasSuffix(v, "}") {
		return v
	}

	ed := strings.SplitN(v[2:len(v)-1], ":", 2)
	e, d := ed[0], ""
	if len(ed) > 1 {
		d = ed[1]
	}

	v, _ = utils.EnvGet(e, "").(string)
	if v == "" && d != "" {
		v = d
	}
	return v
}

func getPairs(s, separator string) map[string]string {

	m := make(map[string]string)

	for _, p := range strings.Split(s, ",") {

		if utils.IsEmpty(p) {
			continue
		}
		kv := strings.SplitN(p, separator, 2)
		k := strings.TrimSpace(kv[0])
		if utils.IsEmpty(k) {
			continue
		}
		v := ""
		if len(kv) > 1 {
			v = strings.TrimSpace(kv[1])
		}
		m[k] = expandEnv(v)
	}
	return m
}

// GetKeyValues parses "k1=v1,k2=${ENV:default}".
func GetKeyValues(s string) map[string]string {
	return getPairs(s, "=")
}

// GetColonPairs parses "from1:to1,from2:to2".
func GetColonPairs(s string) map[string]string {
	return getPairs(s, ":")
}

func MapToArray(m map[string]string) []string {

	var arr []string
	for k, v := range m {
		arr = append(arr, k+"="+v)
	}
	sort.Strings(arr)
	return arr
}
