package containerruntime

import "os"

func execStat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func hostnameOrEmpty() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}
