package sfc

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sri0013/vnf-project/internal/config"
	"github.com/sri0013/vnf-project/internal/domain"
)

// ChainSpec is the chain and traffic direction served for one request type.
type ChainSpec struct {
	Chain         []domain.VNFType
	Direction     domain.Direction
	LatencyBudget time.Duration
}

// Catalog maps request types to chains. Complementary entries are keyed
// "<request_type>_response" and override the reversed primary chain.
type Catalog struct {
	requestTypes  map[domain.RequestType]ChainSpec
	complementary map[string]ChainSpec
}

// catalogFile is the YAML layout accepted by LoadCatalogFile.
type catalogFile struct {
	RequestTypes        map[string]config.ChainConfig `yaml:"request_types"`
	ComplementaryChains map[string]config.ChainConfig `yaml:"complementary_chains"`
}

// NewCatalog builds a catalog from configuration, validating every chain
// against the known vnf types.
func NewCatalog(cfg config.SFCConfig, known []domain.VNFType) (*Catalog, error) {
	return build(cfg.RequestTypes, cfg.ComplementaryChains, known)
}

// LoadCatalogFile reads a YAML catalog.
func LoadCatalogFile(path string, known []domain.VNFType) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(f.RequestTypes) == 0 {
		return nil, fmt.Errorf("catalog %s defines no request types", path)
	}
	return build(f.RequestTypes, f.ComplementaryChains, known)
}

func build(types, complementary map[string]config.ChainConfig, known []domain.VNFType) (*Catalog, error) {
	c := &Catalog{
		requestTypes:  make(map[domain.RequestType]ChainSpec, len(types)),
		complementary: make(map[string]ChainSpec, len(complementary)),
	}
	for name, cc := range types {
		spec, err := toSpec(cc, known)
		if err != nil {
			return nil, fmt.Errorf("request type %s: %w", name, err)
		}
		c.requestTypes[domain.RequestType(strings.ToLower(name))] = spec
	}
	for name, cc := range complementary {
		spec, err := toSpec(cc, known)
		if err != nil {
			return nil, fmt.Errorf("complementary chain %s: %w", name, err)
		}
		c.complementary[strings.ToLower(name)] = spec
	}
	return c, nil
}

func toSpec(cc config.ChainConfig, known []domain.VNFType) (ChainSpec, error) {
	chain := domain.VNFTypes(cc.Chain)
	if err := ValidateChain(chain, known); err != nil {
		return ChainSpec{}, err
	}
	dir := domain.Direction(strings.ToLower(cc.Direction))
	switch dir {
	case domain.DirectionInbound, domain.DirectionOutbound, domain.DirectionBidirectional:
	case "":
		dir = domain.DirectionInbound
	default:
		return ChainSpec{}, fmt.Errorf("unknown direction %q", cc.Direction)
	}
	return ChainSpec{Chain: chain, Direction: dir, LatencyBudget: cc.LatencyBudget}, nil
}

// ValidateChain rejects empty chains and chains naming a type twice or a
// type outside known. An empty known list accepts any type.
func ValidateChain(chain []domain.VNFType, known []domain.VNFType) error {
	if len(chain) == 0 {
		return fmt.Errorf("chain must not be empty")
	}
	allowed := make(map[domain.VNFType]struct{}, len(known))
	for _, t := range known {
		allowed[t] = struct{}{}
	}
	seen := make(map[domain.VNFType]struct{}, len(chain))
	for _, t := range chain {
		if len(allowed) > 0 {
			if _, ok := allowed[t]; !ok {
				return fmt.Errorf("unknown vnf type %q", t)
			}
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("vnf type %q appears twice", t)
		}
		seen[t] = struct{}{}
	}
	return nil
}

// Lookup returns the chain for a request type.
func (c *Catalog) Lookup(rt domain.RequestType) (ChainSpec, bool) {
	spec, ok := c.requestTypes[rt]
	if !ok {
		return ChainSpec{}, false
	}
	spec.Chain = append([]domain.VNFType(nil), spec.Chain...)
	return spec, true
}

// Complementary returns the return-path chain for a request type: the
// "<request_type>_response" override when configured, otherwise the primary
// chain reversed.
func (c *Catalog) Complementary(rt domain.RequestType, primary []domain.VNFType) []domain.VNFType {
	if spec, ok := c.complementary[string(rt)+"_response"]; ok {
		return append([]domain.VNFType(nil), spec.Chain...)
	}
	out := make([]domain.VNFType, len(primary))
	for i, t := range primary {
		out[len(primary)-1-i] = t
	}
	return out
}

// RequestTypes lists the configured request types in name order.
func (c *Catalog) RequestTypes() []domain.RequestType {
	out := make([]domain.RequestType, 0, len(c.requestTypes))
	for rt := range c.requestTypes {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Classify derives the request type from traffic metadata. SaaS access wins
// over attachments, which win over compliance; remaining inbound traffic is
// user protection and everything else is auth enforcement.
func Classify(meta domain.RequestMetadata) domain.RequestType {
	switch {
	case meta.SaaSAccess:
		return domain.RequestBranchCloudSaaSAccess
	case meta.HasAttachments:
		return domain.RequestAttachmentRiskReduction
	case meta.ComplianceRequired:
		return domain.RequestOutboundDataProtectionCompliance
	case meta.Direction == domain.DirectionInbound:
		return domain.RequestInboundUserProtection
	default:
		return domain.RequestAuthAndAntiSpoofEnforcement
	}
}
