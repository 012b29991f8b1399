// Package graph derives the node/edge layout served by
// GET /api/hypergrid-graph (spec §6), grounded on
// original_source/operator/operator/src/graph.rs's build_hypergrid_graph_data.
// This is a pure function over already-held component state: the operator's
// own TBA, the hot wallets it manages, and the authorized clients attached to
// each — no new persistence (SPEC_FULL.md "Graph endpoint data").
package graph

import (
	"fmt"

	"github.com/hypergrid-io/hypergrid/internal/model"
)

type Node struct {
	ID   string                 `json:"id"`
	Type string                 `json:"node_type"`
	Data map[string]interface{} `json:"data"`
}

type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Input bundles the already-resolved state the graph is derived from.
type Input struct {
	OwnerNodeID        string
	OperatorTBA        string // empty if not yet minted/resolved
	OperatorEntryName  string
	GaslessEnabled     bool
	DelegationVerified bool
	HotWallets         []model.ManagedWallet
	SelectedWalletID   string
	AuthorizedClients  []model.AuthorizedClient
}

// Build constructs the graph exactly the way the original does: an owner
// node, an operator-wallet node (or a "mint operator wallet" action node
// when unresolved), one node per linked hot wallet, and one node per
// authorized client attached to a hot wallet.
func Build(in Input) Graph {
	var g Graph

	ownerNodeID := "owner-node"
	g.Nodes = append(g.Nodes, Node{
		ID:   ownerNodeID,
		Type: "ownerNode",
		Data: map[string]interface{}{"name": in.OwnerNodeID, "tba_address": nullableString(in.OperatorTBA)},
	})

	if in.OperatorTBA == "" {
		mintNodeID := "action-mint-operator-wallet"
		g.Nodes = append(g.Nodes, Node{
			ID:   mintNodeID,
			Type: "mintOperatorWalletActionNode",
			Data: map[string]interface{}{"label": "Create Operator Wallet", "owner_node_name": in.OwnerNodeID},
		})
		g.Edges = append(g.Edges, edge(ownerNodeID, mintNodeID))
		return g
	}

	opNodeID := fmt.Sprintf("operator-wallet-%s", in.OperatorTBA)
	g.Nodes = append(g.Nodes, Node{
		ID:   opNodeID,
		Type: "operatorWalletNode",
		Data: map[string]interface{}{
			"name":                in.OperatorEntryName,
			"tba_address":         in.OperatorTBA,
			"gasless_enabled":     in.GaslessEnabled,
			"delegation_verified": in.DelegationVerified,
		},
	})
	g.Edges = append(g.Edges, edge(ownerNodeID, opNodeID))

	for _, hw := range in.HotWallets {
		hwNodeID := fmt.Sprintf("hot-wallet-%s", hw.ID)
		g.Nodes = append(g.Nodes, Node{
			ID:   hwNodeID,
			Type: "hotWalletNode",
			Data: map[string]interface{}{
				"address":       hw.ID,
				"name":          hw.Name,
				"is_active_mcp": hw.ID == in.SelectedWalletID,
				"is_encrypted":  hw.Storage.Kind == model.StorageEncrypted,
				"max_per_call":  hw.Limits.MaxPerCall,
				"max_total":     hw.Limits.MaxTotal,
			},
		})
		g.Edges = append(g.Edges, edge(opNodeID, hwNodeID))

		for _, client := range in.AuthorizedClients {
			if client.HotWallet != hw.ID {
				continue
			}
			clientNodeID := fmt.Sprintf("auth-client-%s", client.ID)
			g.Nodes = append(g.Nodes, Node{
				ID:   clientNodeID,
				Type: "authorizedClientNode",
				Data: map[string]interface{}{
					"client_id":          client.ID,
					"client_name":        client.Name,
					"associated_wallet":  client.HotWallet,
					"status":             client.Status,
				},
			})
			g.Edges = append(g.Edges, edge(hwNodeID, clientNodeID))
		}
	}

	return g
}

func edge(source, target string) Edge {
	return Edge{ID: fmt.Sprintf("edge-%s-%s", source, target), Source: source, Target: target}
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
