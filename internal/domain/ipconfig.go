package domain

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// cidrPattern is strict IPv4 CIDR: dotted quad, each octet 0-255, prefix 0-32.
var cidrPattern = regexp.MustCompile(`^(([0-9]|[1-9][0-9]|1[0-9]{2}|2[0-4][0-9]|25[0-5])\.){3}([0-9]|[1-9][0-9]|1[0-9]{2}|2[0-4][0-9]|25[0-5])(\/(3[0-2]|[1-2][0-9]|[0-9]))$`)

var whitespace = regexp.MustCompile(`\s+`)

// IPConfig is an offer-scoped named pool configuration. Updates may only
// append blocks; existing blocks, the name, and IPsPerSub are immutable.
type IPConfig struct {
	ID        int64
	OfferID   int64
	Name      string
	IPsPerSub int
	Blocks    []string
}

// IPBlock is one CIDR range belonging to exactly one IPConfig.
type IPBlock struct {
	ID         int64
	IPConfigID int64
	CIDR       string
}

// IPAddress is one concrete address drawn from an IPBlock. A claimed address
// carries the subscription it is assigned to.
type IPAddress struct {
	ID             int64
	IPBlockID      int64
	Value          string
	Available      bool
	SubscriptionID uuid.NullUUID
}

// Validate normalizes the config in place and checks it: IPsPerSub must be a
// non-zero power of two, blocks must be unique valid IPv4 CIDR ranges, and no
// block may be smaller than one subnet of IPsPerSub addresses.
func (c *IPConfig) Validate() error {
	if c.IPsPerSub == 0 || c.IPsPerSub&(c.IPsPerSub-1) != 0 {
		return &ValidationError{Field: "ipsPerSub", Reason: fmt.Sprintf("%d is not a power of two", c.IPsPerSub)}
	}

	seen := make(map[string]struct{}, len(c.Blocks))
	for i, block := range c.Blocks {
		block = whitespace.ReplaceAllString(block, "")
		c.Blocks[i] = block

		if _, dup := seen[block]; dup {
			return &ValidationError{Field: "ipBlocks", Reason: fmt.Sprintf("duplicate block %s", block)}
		}
		seen[block] = struct{}{}

		if !cidrPattern.MatchString(block) {
			return &ValidationError{Field: "ipBlocks", Reason: fmt.Sprintf("%s is not a valid IPv4 CIDR block", block)}
		}

		prefix, _ := strconv.Atoi(block[strings.IndexByte(block, '/')+1:])
		if c.IPsPerSub > 1<<(32-prefix) {
			return &ValidationError{
				Field:  "ipBlocks",
				Reason: fmt.Sprintf("block %s holds fewer than %d addresses", block, c.IPsPerSub),
			}
		}
	}
	return nil
}

// BlocksAdded verifies that updated differs from c only by appended blocks
// and returns the appended suffix. Any change to the name, IPsPerSub, or an
// existing block is rejected.
func (c *IPConfig) BlocksAdded(updated *IPConfig) ([]string, error) {
	if c.Name != updated.Name {
		return nil, &ConflictError{Resource: "IP config", Key: c.Name, Reason: "the name of an existing IP config cannot be changed"}
	}
	if c.IPsPerSub != updated.IPsPerSub {
		return nil, &ConflictError{Resource: "IP config", Key: c.Name, Reason: "ipsPerSub of an existing IP config cannot be changed"}
	}
	if len(updated.Blocks) < len(c.Blocks) {
		return nil, &ConflictError{Resource: "IP config", Key: c.Name, Reason: "IP blocks cannot be removed"}
	}
	for i, block := range c.Blocks {
		if updated.Blocks[i] != block {
			return nil, &ConflictError{
				Resource: "IP config",
				Key:      c.Name,
				Reason:   fmt.Sprintf("existing IP block %s cannot be changed", block),
			}
		}
	}
	return updated.Blocks[len(c.Blocks):], nil
}

// SubnetAddresses partitions a CIDR block into subnets of ipsPerSub addresses
// and returns the base address of each subnet. These are the values persisted
// as claimable pool entries.
func SubnetAddresses(cidr string, ipsPerSub int) ([]string, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, &ValidationError{Field: "ipBlocks", Reason: fmt.Sprintf("%s is not a valid IPv4 CIDR block", cidr)}
	}
	prefix, _ := network.Mask.Size()

	k := bits.TrailingZeros(uint(ipsPerSub))
	subnetPrefix := 32 - k
	if subnetPrefix < prefix {
		return nil, &ValidationError{
			Field:  "ipBlocks",
			Reason: fmt.Sprintf("block %s holds fewer than %d addresses", cidr, ipsPerSub),
		}
	}

	base := binary.BigEndian.Uint32(network.IP.To4())
	count := 1 << (subnetPrefix - prefix)
	step := uint32(ipsPerSub)

	addrs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		buf := make(net.IP, 4)
		binary.BigEndian.PutUint32(buf, base+uint32(i)*step)
		addrs = append(addrs, buf.String())
	}
	return addrs, nil
}
