package kroute

import (
	"fmt"

	"github.com/encodeous/ospf6rde/imsg"
)

// Parent forwards route changes to the privileged parent process, which
// owns the kernel routing socket.
type Parent struct {
	Out Sender
}

func (p *Parent) Change(routes []imsg.KRoute) error {
	if len(routes) == 0 {
		return fmt.Errorf("kroute change: no next hop")
	}
	return p.Out.Compose(imsg.KRouteChange, 0, 0, imsg.EncodeKRoutes(routes...))
}

func (p *Parent) Delete(route imsg.KRoute) error {
	return p.Out.Compose(imsg.KRouteDelete, 0, 0, imsg.EncodeKRoutes(route))
}

func (p *Parent) Close() error {
	return nil
}
