// Package client is the core surface a chat front end drives: one Client
// per login, owning the session manager, mode controller and upload
// channel for that user.
//
// # Basic Usage
//
// Log in and follow the conversation:
//
//	c, err := client.Login(ctx, cfg, session.RolePatient, "patient6",
//	    client.WithCallbacks(client.Callbacks{
//	        OnStateChange: func(st client.ConversationState) {
//	            render(st.Messages)
//	        },
//	    }))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Logout()
//
//	// Send a message
//	c.SendMessage("Can I take ibuprofen?")
//
// Patients can move between the human expert and the automated responder:
//
//	c.SwitchMode(session.ModeExpert)
//
// # Simplified Reply Helper
//
// For simple request-response patterns, use SendAndWait:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	reply, err := c.SendAndWait(ctx, "When can I shower?")
//
// # Thread Safety
//
// Client is safe for concurrent use. State change notifications are
// delivered from a single goroutine, coalesced so a slow subscriber only
// sees the latest state; subscribers may call back into the Client.
package client
