//go:build debug
// +build debug

package tftp

import "log"

func debug(fmt string, args ...interface{}) {
	log.Printf(fmt, args...)
}
