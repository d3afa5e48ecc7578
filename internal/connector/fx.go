package connector

import (
	"github.com/ledgerforgelabs/ledgerforge/internal/connector/asaas"
	"github.com/ledgerforgelabs/ledgerforge/internal/connector/eduzz"
	"github.com/ledgerforgelabs/ledgerforge/internal/connector/hotmart"
	"github.com/ledgerforgelabs/ledgerforge/internal/connector/kiwify"
	"github.com/ledgerforgelabs/ledgerforge/internal/connector/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("connector",
	fx.Provide(func() *Registry {
		return NewRegistry(
			stripe.New(),
			hotmart.New(),
			asaas.New(),
			kiwify.New(),
			eduzz.New(),
		)
	}),
)
