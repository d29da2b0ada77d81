package app

import "github.com/letroapp/letro_server/internal/letro_service/domain"

// Handlers bundles the collaborators of the Letro message handlers.
type Handlers struct {
	Verifier  domain.SignatureVerifier
	Retriever domain.ConnectionParamsRetriever
	Orgs      *OrgDirectory
}

// RegisterLetroHandlers registers every Letro content type on d.
func RegisterLetroHandlers(d *Dispatcher, h Handlers) {
	d.Register(domain.ContentTypePairingRequest, NewContactPairingHandler(h.Verifier))
	d.Register(domain.ContentTypePairingAuth, NewPairingAuthorisationHandler())
	d.Register(domain.ContentTypeAccountRequest, NewAccountCreationHandler(h.Orgs))
	d.Register(domain.ContentTypeConnParamsReq, NewConnectionParamsHandler(h.Retriever))
}
