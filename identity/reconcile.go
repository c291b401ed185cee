package identity

// ReconcileResult is the outcome of Reconcile: the three per-request
// identifiers to persist, plus whether a session reset rotated the sid
// (which the caller must surface so the pool cookie gets cleared).
type ReconcileResult struct {
	VID, SID, CID *IDState
	SessionReset  bool
}

// reconcileIDState applies the "increments visits on the first call of
// a new vid, sets isNew=false after the first time" rule of spec.md
// §4.6 to a single identifier slot: a nil or isNew=true incoming state
// is this id's first call and is returned unchanged (visits defaulted
// to 1); an isNew=false incoming state is a repeat call, whose visits
// counter is incremented and isNew pinned false.
//
// get_zar_dict's exact body is outside the filtered original source
// (imported from a module the distillation did not retrieve); this
// reconciliation is derived directly from spec.md §4.6's prose.
func reconcileIDState(incoming *IDState, unixMillis int64) *IDState {
	if incoming == nil {
		return &IDState{IsNew: true, Visits: 1, T: unixMillis}
	}
	out := *incoming
	if out.Visits < 1 {
		out.Visits = 1
	}
	if out.IsNew {
		return &out
	}
	out.Visits++
	out.IsNew = false
	return &out
}

// Reconcile merges the client-supplied zar block with any existing
// sid/cid cookies, applies the visit-counting rule to all three
// identifiers, and rotates the sid when the session-reset URL param is
// present and differs from the cookie's last-seen value.
func Reconcile(body *ZarCookie, sidCookie, cidCookie *IDState, sessionResetParam string, unixMillis int64) *ReconcileResult {
	if body == nil {
		body = &ZarCookie{}
	}

	sidState := sidCookie
	if sidState == nil {
		sidState = body.SID
	}
	cidState := cidCookie
	if cidState == nil {
		cidState = body.CID
	}

	res := &ReconcileResult{
		VID: reconcileIDState(body.VID, unixMillis),
		SID: reconcileIDState(sidState, unixMillis),
		CID: reconcileIDState(cidState, unixMillis),
	}

	if sessionResetParam != "" && sessionResetParam != res.SID.ResetParamValue {
		res.SID = &IDState{
			ID:              NewSID(),
			IsNew:           true,
			Visits:          1,
			T:               unixMillis,
			ResetParamValue: sessionResetParam,
		}
		res.SessionReset = true
	}

	if res.VID.ID == "" {
		res.VID.ID = NewVID(unixMillis)
	}
	if res.SID.ID == "" {
		res.SID.ID = NewSID()
	}
	if res.CID.ID == "" {
		res.CID.ID = NewCID()
	}

	return res
}
