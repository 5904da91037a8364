//go:build !linux

package kroute

import (
	"errors"
	"log/slog"
)

var ErrUnsupported = errors.New("kroute: netlink backend is only available on linux")

func NewNetlink(table int, log *slog.Logger) (Backend, error) {
	return nil, ErrUnsupported
}
