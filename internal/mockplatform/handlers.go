package mockplatform

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/spounge-ai/polypay/pkg/apiclient"
)

const declinedCardNumber = "4000000000000002"

func (p *Platform) createToken(w http.ResponseWriter, r *http.Request) {
	if !p.acceptsKey(bearer(r), "pk_", p.publishableKeys) {
		unauthorized(w, "Invalid API Key provided.")
		return
	}
	if err := r.ParseForm(); err != nil {
		badRequest(w, "parameter_invalid", "", err.Error())
		return
	}

	var token apiclient.Token
	switch {
	case r.PostForm.Get("card[number]") != "":
		card, status, e := p.cardFromForm(r.PostForm)
		if status != 0 {
			writeError(w, status, e)
			return
		}
		token = apiclient.Token{Type: "card", Card: card}
	case r.PostForm.Get("bank_account[account_number]") != "":
		account := r.PostForm.Get("bank_account[account_number]")
		token = apiclient.Token{Type: "bank_account", BankAccount: &apiclient.BankAccount{
			ID:                newID("ba"),
			Object:            "bank_account",
			AccountHolderName: r.PostForm.Get("bank_account[account_holder_name]"),
			AccountHolderType: r.PostForm.Get("bank_account[account_holder_type]"),
			Country:           r.PostForm.Get("bank_account[country]"),
			Currency:          r.PostForm.Get("bank_account[currency]"),
			RoutingNumber:     r.PostForm.Get("bank_account[routing_number]"),
			Last4:             last4(account),
			Status:            "new",
		}}
	default:
		badRequest(w, "parameter_missing", "card", "You must supply either a card or a bank account.")
		return
	}

	token.ID = newID("tok")
	token.Object = "token"
	token.Created = p.now().Unix()

	p.mu.Lock()
	p.tokens[token.ID] = &tokenState{token: token}
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, token)
}

func (p *Platform) cardFromForm(form map[string][]string) (*apiclient.Card, int, apiError) {
	get := func(k string) string {
		if v := form[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	number := strings.ReplaceAll(get("card[number]"), " ", "")
	if !luhnValid(number) {
		return nil, http.StatusPaymentRequired, apiError{
			Type: typeCard, Code: "incorrect_number", Param: "number",
			Message: "Your card number is incorrect.",
		}
	}
	if number == declinedCardNumber {
		return nil, http.StatusPaymentRequired, apiError{
			Type: typeCard, Code: "card_declined", DeclineCode: "generic_decline",
			Message: "Your card was declined.",
		}
	}

	month, err := strconv.Atoi(get("card[exp_month]"))
	if err != nil || month < 1 || month > 12 {
		return nil, http.StatusPaymentRequired, apiError{
			Type: typeCard, Code: "invalid_expiry_month", Param: "exp_month",
			Message: "Your card's expiration month is invalid.",
		}
	}
	year, err := strconv.Atoi(get("card[exp_year]"))
	now := p.now()
	if err != nil || year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return nil, http.StatusPaymentRequired, apiError{
			Type: typeCard, Code: "invalid_expiry_year", Param: "exp_year",
			Message: "Your card's expiration year is invalid.",
		}
	}

	return &apiclient.Card{
		ID:       newID("card"),
		Object:   "card",
		Brand:    brand(number),
		Last4:    last4(number),
		ExpMonth: month,
		ExpYear:  year,
		Funding:  "credit",
		Country:  "US",
		Name:     get("card[name]"),
	}, 0, apiError{}
}

func (p *Platform) retrieveSource(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	secret := r.URL.Query().Get("client_secret")

	p.mu.Lock()
	src, ok := p.sources[id]
	var out apiclient.Source
	if ok {
		out = *src
	}
	known := p.publishableKeys[bearer(r)]
	p.mu.Unlock()

	if !ok || secret == "" || secret != out.ClientSecret {
		missing(w, "id", "No such source: "+id)
		return
	}
	if cred := bearer(r); cred != out.ClientSecret && !known {
		unauthorized(w, "Invalid client secret provided.")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// customerFor authorizes an ephemeral key against the customer in the path.
// On failure it has already written the response.
func (p *Platform) customerFor(w http.ResponseWriter, r *http.Request) (*apiclient.Customer, bool) {
	id := mux.Vars(r)["id"]
	key, ok := p.ephemeralKeys[bearer(r)]
	switch {
	case !ok:
		unauthorized(w, "Invalid API Key provided.")
		return nil, false
	case !p.now().Before(time.Unix(key.Expires, 0)):
		unauthorized(w, "Ephemeral key has expired.")
		return nil, false
	case key.CustomerID() != id:
		writeError(w, http.StatusForbidden, apiError{
			Type:    typeInvalidRequest,
			Message: "The provided key does not have access to customer " + id + ".",
		})
		return nil, false
	}
	c, ok := p.customers[id]
	if !ok {
		missing(w, "id", "No such customer: "+id)
		return nil, false
	}
	return c, true
}

func (p *Platform) retrieveCustomer(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	c, ok := p.customerFor(w, r)
	var out apiclient.Customer
	if ok {
		out = cloneCustomer(c)
	}
	p.mu.Unlock()
	if ok {
		writeJSON(w, http.StatusOK, out)
	}
}

func (p *Platform) updateCustomer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		badRequest(w, "parameter_invalid", "", err.Error())
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.customerFor(w, r)
	if !ok {
		return
	}

	next := cloneCustomer(c)
	for param, values := range r.PostForm {
		if err := applyCustomerParam(&next, param, values[0]); err != nil {
			badRequest(w, "parameter_unknown", param, err.Error())
			return
		}
	}
	if next.DefaultSource != "" && indexOfSource(&next, next.DefaultSource) < 0 {
		missing(w, "default_source", "No such source: "+next.DefaultSource)
		return
	}

	*c = next
	writeJSON(w, http.StatusOK, cloneCustomer(c))
}

func (p *Platform) attachSource(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		badRequest(w, "parameter_invalid", "", err.Error())
		return
	}
	sourceID := r.PostForm.Get("source")

	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.customerFor(w, r)
	if !ok {
		return
	}
	if sourceID == "" {
		badRequest(w, "parameter_missing", "source", "Missing required param: source.")
		return
	}

	var attached apiclient.PaymentSource
	switch {
	case strings.HasPrefix(sourceID, "tok_"):
		tok, ok := p.tokens[sourceID]
		if !ok {
			missing(w, "source", "No such token: "+sourceID)
			return
		}
		if tok.used {
			badRequest(w, "token_already_used", "source",
				"You cannot use a token more than once: "+sourceID+".")
			return
		}
		if tok.token.Card == nil {
			badRequest(w, "parameter_invalid", "source", "Only card tokens can be attached.")
			return
		}
		tok.used = true
		card := *tok.token.Card
		card.Customer = c.ID
		attached = apiclient.PaymentSource{ID: card.ID, Object: "card", Card: &card}
	default:
		src, ok := p.sources[sourceID]
		if !ok {
			missing(w, "source", "No such source: "+sourceID)
			return
		}
		if i := indexOfSource(c, sourceID); i >= 0 {
			writeJSON(w, http.StatusOK, c.Sources.Data[i])
			return
		}
		s := *src
		attached = apiclient.PaymentSource{ID: s.ID, Object: "source", Source: &s}
	}

	if c.Sources == nil {
		c.Sources = &apiclient.SourceList{Object: "list", URL: "/v1/customers/" + c.ID + "/sources"}
	}
	c.Sources.Data = append(c.Sources.Data, attached)
	c.Sources.TotalCount = len(c.Sources.Data)
	if c.DefaultSource == "" {
		c.DefaultSource = attached.ID
	}
	writeJSON(w, http.StatusOK, attached)
}

func (p *Platform) detachSource(w http.ResponseWriter, r *http.Request) {
	sourceID := mux.Vars(r)["source"]

	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.customerFor(w, r)
	if !ok {
		return
	}
	i := indexOfSource(c, sourceID)
	if i < 0 {
		missing(w, "id", "No such source: "+sourceID+" is not attached to customer "+c.ID)
		return
	}

	removed := c.Sources.Data[i]
	c.Sources.Data = append(c.Sources.Data[:i], c.Sources.Data[i+1:]...)
	c.Sources.TotalCount = len(c.Sources.Data)
	if c.DefaultSource == sourceID {
		c.DefaultSource = ""
		if len(c.Sources.Data) > 0 {
			c.DefaultSource = c.Sources.Data[0].ID
		}
	}

	if removed.Source != nil {
		s := *removed.Source
		s.Status = "consumed"
		if stored, ok := p.sources[s.ID]; ok {
			stored.Status = "consumed"
		}
		writeJSON(w, http.StatusOK, apiclient.PaymentSource{ID: s.ID, Object: "source", Source: &s})
		return
	}
	writeJSON(w, http.StatusOK, apiclient.PaymentSource{ID: removed.ID, Object: removed.Object, Deleted: true})
}

// createEphemeralKey plays the integration backend: a secret key mints a key
// for an existing customer. The API version comes from the Stripe-Version
// header or the api_version form field.
func (p *Platform) createEphemeralKey(w http.ResponseWriter, r *http.Request) {
	if !p.acceptsKey(bearer(r), "sk_", p.secretKeys) {
		unauthorized(w, "Invalid API Key provided.")
		return
	}
	if err := r.ParseForm(); err != nil {
		badRequest(w, "parameter_invalid", "", err.Error())
		return
	}
	if r.Header.Get("Stripe-Version") == "" && r.PostForm.Get("api_version") == "" {
		badRequest(w, "parameter_missing", "api_version",
			"Ephemeral keys require an explicit API version.")
		return
	}
	customerID := r.PostForm.Get("customer")
	if customerID == "" {
		badRequest(w, "parameter_missing", "customer", "Missing required param: customer.")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.customers[customerID]; !ok {
		missing(w, "customer", "No such customer: "+customerID)
		return
	}
	writeJSON(w, http.StatusOK, p.issueKeyLocked(customerID, p.opts.EphemeralKeyTTL))
}

// acceptsKey checks a platform key. With no keys seeded any key carrying the
// prefix is accepted.
func (p *Platform) acceptsKey(key, prefix string, allowed map[string]bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(allowed) == 0 {
		return strings.HasPrefix(key, prefix) && len(key) > len(prefix)
	}
	return allowed[key]
}

func applyCustomerParam(c *apiclient.Customer, param, value string) error {
	switch param {
	case "email":
		c.Email = value
		return nil
	case "description":
		c.Description = value
		return nil
	case "default_source":
		c.DefaultSource = value
		return nil
	}

	if name, ok := bracketed(param, "metadata"); ok {
		if value == "" {
			delete(c.Metadata, name)
			return nil
		}
		if c.Metadata == nil {
			c.Metadata = make(map[string]string)
		}
		c.Metadata[name] = value
		return nil
	}

	if field, ok := bracketed(param, "shipping"); ok {
		if c.Shipping == nil {
			c.Shipping = &apiclient.Shipping{}
		}
		switch field {
		case "name":
			c.Shipping.Name = value
			return nil
		case "phone":
			c.Shipping.Phone = value
			return nil
		}
		if addrField, ok := bracketed(field, "address"); ok {
			if c.Shipping.Address == nil {
				c.Shipping.Address = &apiclient.Address{}
			}
			return applyAddressField(c.Shipping.Address, addrField, value)
		}
	}
	return errUnknownParam(param)
}

func applyAddressField(a *apiclient.Address, field, value string) error {
	switch field {
	case "line1":
		a.Line1 = value
	case "line2":
		a.Line2 = value
	case "city":
		a.City = value
	case "state":
		a.State = value
	case "postal_code":
		a.PostalCode = value
	case "country":
		a.Country = value
	default:
		return errUnknownParam("address[" + field + "]")
	}
	return nil
}

// bracketed splits "prefix[rest]" and "prefix[a][b]" into rest or "a][b"
// style remainders suitable for another bracketed call.
func bracketed(param, prefix string) (string, bool) {
	if !strings.HasPrefix(param, prefix+"[") || !strings.HasSuffix(param, "]") {
		return "", false
	}
	inner := param[len(prefix)+1 : len(param)-1]
	if i := strings.Index(inner, "]["); i >= 0 {
		return inner[:i] + "[" + inner[i+2:] + "]", true
	}
	return inner, true
}

type errUnknownParam string

func (e errUnknownParam) Error() string {
	return "Received unknown parameter: " + string(e)
}

func indexOfSource(c *apiclient.Customer, id string) int {
	if c.Sources == nil {
		return -1
	}
	for i, s := range c.Sources.Data {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func luhnValid(number string) bool {
	if len(number) < 12 || len(number) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func brand(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return "Visa"
	case strings.HasPrefix(number, "5"):
		return "MasterCard"
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return "American Express"
	case strings.HasPrefix(number, "6011"):
		return "Discover"
	}
	return "Unknown"
}

func last4(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}
