package flowcrypt

// ScreenResponse is the navigation payload a flow exchange answers with.
type ScreenResponse struct {
	Screen string         `json:"screen"`
	Data   map[string]any `json:"data"`
}

// Registration flow screens in presentation order.
var screenResponses = map[string]ScreenResponse{
	"PERSONAL_INFO": {Screen: "PERSONAL_INFO", Data: map[string]any{}},
	"TRAINING":      {Screen: "TRAINING", Data: map[string]any{}},
	"VOLUNTEER":     {Screen: "VOLUNTEER", Data: map[string]any{}},
	"SUMMARY":       {Screen: "SUMMARY", Data: map[string]any{}},
	"TERMS":         {Screen: "TERMS", Data: map[string]any{}},
}

// Respond routes a decrypted flow exchange to its screen response.
func (s *Service) Respond(payload *Payload) ScreenResponse {
	switch payload.Action {
	case "INIT":
		return screenResponses["PERSONAL_INFO"]

	case "data_exchange":
		param, _ := payload.Data["some_param"].(string)
		if param == "" {
			param = "VOLUNTEER_OPTION_1"
		}
		return ScreenResponse{
			Screen: "SUCCESS",
			Data: map[string]any{
				"extension_message_response": map[string]any{
					"params": map[string]any{
						"flow_token":      payload.FlowToken,
						"some_param_name": param,
					},
				},
			},
		}

	case "BACK":
		return screenResponses["SUMMARY"]
	}

	s.log.Warn("unknown flow action: " + payload.Action)
	return screenResponses["TERMS"]
}
