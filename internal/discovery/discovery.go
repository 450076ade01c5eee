// Package discovery optionally advertises a running evolvd daemon's control
// socket over mDNS, so a companion tool on the same LAN can find it without
// being told the socket path out of band.
package discovery

import (
	"fmt"
	"os"

	"github.com/hashicorp/mdns"
)

const serviceName = "_evolvd._tcp"

// Advertise registers an mDNS service record naming instanceName (`evolvd
// start` passes the state directory) and pointing at info (typically the
// control socket path, since evolvd's control plane is Unix-socket based
// rather than TCP — the port field is unused and set to 0). It returns a
// shutdown func to stop advertising.
func Advertise(instanceName string, info []string) (func(), error) {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	service, err := mdns.NewMDNSService(instanceName, serviceName, "", host+".", 0, nil, info)
	if err != nil {
		return nil, fmt.Errorf("discovery: build service record: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discovery: start mdns server: %w", err)
	}
	return func() { server.Shutdown() }, nil
}

// Lookup browses the LAN for running evolvd daemons for a short window,
// returning the info TXT records each one advertised.
func Lookup() ([][]string, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})
	var results [][]string

	go func() {
		for e := range entries {
			results = append(results, e.InfoFields)
		}
		close(done)
	}()

	err := mdns.Lookup(serviceName, entries)
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("discovery: lookup: %w", err)
	}
	return results, nil
}
